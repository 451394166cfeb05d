// opsctl — операторская CLI-утилита консоли: постановка задач,
// обзор флота, отложенные команды и чтение трейла из терминала.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	consoleURL string
	token      string
)

func main() {
	root := &cobra.Command{
		Use:   "opsctl",
		Short: "Operator CLI for the agent coordination console",
	}
	root.PersistentFlags().StringVar(&consoleURL, "console", envOr("OPSCTL_CONSOLE", "http://localhost:8080"), "console base URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("OPSCTL_TOKEN"), "bearer token (operator JWT or agent token)")

	root.AddCommand(loginCmd(), enqueueCmd(), tasksCmd(), agentsCmd(), commandCmd(), auditCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain an operator JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodPost, "/auth/token",
				map[string]string{"username": username, "password": password})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "operator password")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")
	return cmd
}

func enqueueCmd() *cobra.Command {
	var taskType, description, priority, assignedTo, payload string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Put a new task into the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"type":        taskType,
				"description": description,
				"priority":    priority,
				"assigned_to": assignedTo,
			}
			if payload != "" {
				body["payload"] = json.RawMessage(payload)
			}
			return call(http.MethodPost, "/v1/tasks", body)
		},
	}
	cmd.Flags().StringVarP(&taskType, "type", "t", "", "task type")
	cmd.Flags().StringVarP(&description, "description", "d", "", "human-readable description")
	cmd.Flags().StringVar(&priority, "priority", "normal", "urgent|high|normal|low")
	cmd.Flags().StringVar(&assignedTo, "assign", "", "pre-assign to an agent")
	cmd.Flags().StringVar(&payload, "payload", "", "opaque JSON payload")
	cmd.MarkFlagRequired("type")
	return cmd
}

func tasksCmd() *cobra.Command {
	var status, taskType string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/tasks?status=" + status
			if taskType != "" {
				path += "&type=" + taskType
			}
			return call(http.MethodGet, path, nil)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&taskType, "type", "", "filter by type")
	return cmd
}

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents with presence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/v1/agents", nil)
		},
	}
}

func commandCmd() *cobra.Command {
	var target, action, params string
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Queue a one-shot command for an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"target_id": target, "action": action}
			if params != "" {
				body["parameters"] = json.RawMessage(params)
			}
			return call(http.MethodPost, "/v1/commands", body)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "target agent name")
	cmd.Flags().StringVar(&action, "action", "", "command action (pause, resume, ...)")
	cmd.Flags().StringVar(&params, "params", "", "opaque JSON parameters")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("action")
	return cmd
}

func auditCmd() *cobra.Command {
	var agentID, kind string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the coordination trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/v1/audit?agent_id="+agentID+"&kind="+kind, nil)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "filter by agent")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by event kind")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Dashboard summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/api/v1/dashboard/stats", nil)
		},
	}
}

// call шлет запрос и печатает ответ как есть (JSON консоли уже читаем).
func call(method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, consoleURL+path, reader)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s -> %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	fmt.Println(string(bytes.TrimSpace(data)))
	return nil
}
