package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func liveStateCmd(baseURL string) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// controlCmd posts a control request to a running server.
func controlCmd(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	seed := fs.Int64("seed", 0, "reset: new seed (0 keeps the current one)")
	speed := fs.Float64("speed", 0, "tune: agent speed (0 keeps the current one)")
	follow := fs.Float64("follow", -1, "tune: follow probability (negative keeps the current one)")
	_ = fs.Parse(args)

	path, body, err := controlRequest(name, *seed, *speed, *follow)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + path
	req, _ := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func controlRequest(name string, seed int64, speed, follow float64) (string, []byte, error) {
	body := map[string]any{}
	var path string
	switch name {
	case "reset":
		path = "/admin/v1/reset"
		if seed != 0 {
			body["seed"] = seed
		}
	case "relocate":
		path = "/admin/v1/food/relocate"
	case "snapshot":
		path = "/admin/v1/snapshot"
	case "pause", "resume":
		path = "/admin/v1/" + name
	case "tune":
		path = "/admin/v1/tune"
		if speed > 0 {
			body["speed"] = speed
		}
		if follow >= 0 {
			body["follow"] = follow
		}
		if len(body) == 0 {
			return "", nil, fmt.Errorf("tune: set -speed and/or -follow")
		}
	default:
		return "", nil, fmt.Errorf("unknown control command: %s", name)
	}
	b, err := json.Marshal(body)
	return path, b, err
}
