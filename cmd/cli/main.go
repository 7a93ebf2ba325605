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
	baseURL string
	timeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wiserecon-cli",
		Short: "Reconciliation service CLI",
		Long:  `A command line interface for triggering and inspecting the reconciliation pipeline.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the reconciliation service")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Request timeout")

	var profileID int64
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run bank ingestion",
		Run: func(cmd *cobra.Command, args []string) {
			body := map[string]any{}
			if profileID != 0 {
				body["profile_id"] = profileID
			}
			post("/api/v1/sync/run", body)
		},
	}
	syncCmd.Flags().Int64Var(&profileID, "profile", 0, "Sync a single Wise profile")

	var entity string
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a matching batch",
		Run: func(cmd *cobra.Command, args []string) {
			body := map[string]any{}
			if entity != "" {
				body["entity"] = entity
			}
			post("/api/v1/recon/run", body)
		},
	}
	reconcileCmd.Flags().StringVar(&entity, "entity", "", "Reconcile a single entity (key or display name)")

	learnCmd := &cobra.Command{
		Use:   "learn",
		Short: "Run one learning pass over reviewed suggestions",
		Run: func(cmd *cobra.Command, args []string) {
			post("/api/v1/learn/run", nil)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check service readiness",
		Run: func(cmd *cobra.Command, args []string) {
			get("/ready")
		},
	}

	rootCmd.AddCommand(syncCmd, reconcileCmd, learnCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func post(path string, body map[string]any) {
	client := &http.Client{Timeout: timeout}

	var reader io.Reader
	if len(body) > 0 {
		data, err := json.Marshal(body)
		if err != nil {
			fmt.Printf("Error encoding request: %v\n", err)
			os.Exit(1)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := client.Post(baseURL+path, "application/json", reader)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func get(path string) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(baseURL + path)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		fmt.Printf("Request FAILED (Status: %d)\nResponse: %s\n", resp.StatusCode, string(data))
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(pretty.String())
}
