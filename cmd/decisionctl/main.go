// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command decisionctl is a CLI client for a running decisioncored
// server: create sessions, submit messages, stream their events, and
// drive the pause/resume/cancel controls of §5, following the
// teacher's plain-net/http cobra CLI (cmd/aleutian) rather than a
// generated client SDK.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/agentcore/decisioncore/internal/decisioncore/events"
	"github.com/agentcore/decisioncore/pkg/ux"
)

const (
	defaultBaseURL = "http://localhost:8080"
	baseURLEnvVar  = "DECISIONCTL_SERVER_URL"
)

var baseURLFlag string

func main() {
	ux.InitPersonality()
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("decisionctl: %v", err)
	}
}

// wireEvent mirrors events.Event's wire shape without importing its
// Data payload types up front, so each Kind's json.RawMessage can be
// decoded into the matching events.* struct only once it's needed.
type wireEvent struct {
	Kind      events.Kind
	SessionID string
	Data      json.RawMessage
}

// renderWireEvent maps one decisioncore event onto a ux.StreamRenderer's
// callbacks (status/token/thinking/done/error). Node evaluations render
// as thinking commentary rather than tokens, since they score a node
// rather than add to the answer text.
func renderWireEvent(ctx context.Context, r ux.StreamRenderer, ev wireEvent) {
	switch ev.Kind {
	case events.KindToolInvocationStarted:
		var d events.ToolInvocationStarted
		_ = json.Unmarshal(ev.Data, &d)
		r.OnStatus(ctx, fmt.Sprintf("running %s...", d.Tool))
	case events.KindToolInvocationChunk:
		var d events.ToolInvocationChunk
		_ = json.Unmarshal(ev.Data, &d)
		r.OnToken(ctx, d.Text)
	case events.KindToolInvocationCompleted:
		var d events.ToolInvocationCompleted
		_ = json.Unmarshal(ev.Data, &d)
		if d.Failed {
			r.OnError(ctx, fmt.Errorf("tool invocation failed: %s", d.Observation.ErrorKind))
			return
		}
		r.OnToken(ctx, d.Observation.Text)
	case events.KindNodeEvaluated:
		var d events.NodeEvaluated
		_ = json.Unmarshal(ev.Data, &d)
		r.OnThinking(ctx, fmt.Sprintf("node %s scored %.2f", d.NodeID, d.Reward))
	case events.KindSessionStatusChanged:
		var d events.SessionStatusChanged
		_ = json.Unmarshal(ev.Data, &d)
		r.OnStatus(ctx, fmt.Sprintf("session status: %s", d.Status))
		if d.Status.Terminal() {
			r.OnDone(ctx, ev.SessionID)
		}
	case events.KindError:
		var d events.ErrorData
		_ = json.Unmarshal(ev.Data, &d)
		r.OnError(ctx, fmt.Errorf("%s: %s", d.Kind, d.Detail))
	}
}

var rootCmd = &cobra.Command{
	Use:   "decisionctl",
	Short: "Client for a running decisioncored server",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "server", "", "decisioncored base URL (default "+defaultBaseURL+")")
	rootCmd.AddCommand(createSessionCmd, submitCmd, eventsCmd, cancelCmd, pauseCmd, resumeCmd, snapshotCmd)
}

func serverBaseURL() string {
	if baseURLFlag != "" {
		return baseURLFlag
	}
	if url := os.Getenv(baseURLEnvVar); url != "" {
		return url
	}
	return defaultBaseURL
}

var createSessionCmd = &cobra.Command{
	Use:   "create-session",
	Short: "Create a new session",
	Run: func(cmd *cobra.Command, args []string) {
		repoName, _ := cmd.Flags().GetString("repo-name")
		repoRoot, _ := cmd.Flags().GetString("repo-root")
		workspaceRoot, _ := cmd.Flags().GetString("workspace-root")

		body, _ := json.Marshal(map[string]any{
			"repo_name":      repoName,
			"repo_root":      repoRoot,
			"workspace_root": workspaceRoot,
		})

		var resp struct {
			SessionID string `json:"session_id"`
			Status    string `json:"status"`
		}
		if err := postJSON("/v1/sessions", body, &resp); err != nil {
			log.Fatalf("create session: %v", err)
		}
		fmt.Printf("session_id=%s status=%s\n", resp.SessionID, resp.Status)
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit [session-id] [text...]",
	Short: "Append a user message and drive one Agent Loop turn",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID := args[0]
		text := strings.Join(args[1:], " ")

		body, _ := json.Marshal(map[string]string{"text": text})

		var resp struct {
			ExchangeID string `json:"exchange_id"`
			Outcome    string `json:"outcome"`
			Status     string `json:"status"`
		}
		spinner := ux.NewSpinner("driving agent loop turn...")
		spinner.Start()
		err := postJSON("/v1/sessions/"+sessionID+"/messages", body, &resp)
		if err != nil {
			spinner.StopWithError(err.Error())
			log.Fatalf("submit message: %v", err)
		}
		spinner.StopWithSuccess(fmt.Sprintf("outcome=%s status=%s", resp.Outcome, resp.Status))
		fmt.Printf("exchange_id=%s outcome=%s status=%s\n", resp.ExchangeID, resp.Outcome, resp.Status)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events [session-id]",
	Short: "Stream a session's events over a websocket",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wsURL := "ws" + strings.TrimPrefix(serverBaseURL(), "http") + "/v1/sessions/" + args[0] + "/events"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			log.Fatalf("dial event stream: %v", err)
		}
		defer conn.Close()

		ctx := context.Background()
		renderer := ux.NewTerminalStreamRenderer(os.Stdout, ux.GetPersonality().Level)
		defer renderer.Finalize()

		for {
			var ev wireEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if err != io.EOF {
					renderer.OnError(ctx, err)
				}
				return
			}
			renderWireEvent(ctx, renderer, ev)
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [session-id]",
	Short: "Cancel a session",
	Args:  cobra.ExactArgs(1),
	Run:   controlCommand("cancel"),
}

var pauseCmd = &cobra.Command{
	Use:   "pause [session-id]",
	Short: "Pause a running session",
	Args:  cobra.ExactArgs(1),
	Run:   controlCommand("pause"),
}

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Resume a paused session",
	Args:  cobra.ExactArgs(1),
	Run:   controlCommand("resume"),
}

func controlCommand(action string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		var resp struct {
			Status string `json:"status"`
		}
		if err := postJSON("/v1/sessions/"+args[0]+"/"+action, nil, &resp); err != nil {
			log.Fatalf("%s: %v", action, err)
		}
		fmt.Printf("status=%s\n", resp.Status)
	}
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [session-id]",
	Short: "Print a session's current Snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Get(serverBaseURL() + "/v1/sessions/" + args[0] + "/snapshot")
		if err != nil {
			log.Fatalf("get snapshot: %v", err)
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		fmt.Println(string(data))
	},
}

func postJSON(path string, body []byte, out any) error {
	resp, err := http.Post(serverBaseURL()+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(data))
	}
	return json.Unmarshal(data, out)
}

func init() {
	createSessionCmd.Flags().String("repo-name", "", "repository name")
	createSessionCmd.Flags().String("repo-root", "", "repository root path")
	createSessionCmd.Flags().String("workspace-root", "", "workspace root path")
}
