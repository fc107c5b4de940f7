package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// apiCall sends a JSON request with the palace id as bearer token and
// decodes the JSON response into out. Non-2xx responses surface the
// server's error and hint fields as the returned error.
func apiCall(conf cliConfig, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, conf.APIBase+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if conf.PalaceID != "" {
		req.Header.Set("Authorization", "Bearer "+conf.PalaceID)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
			Hint  string `json:"hint"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Hint != "" {
				return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Hint)
			}
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// remoteMemory is the capsule projection the recall endpoint returns.
type remoteMemory struct {
	ShortID    string `json:"short_id"`
	Agent      string `json:"agent"`
	Ciphertext string `json:"ciphertext"`
	Signature  string `json:"signature"`
	Algorithm  string `json:"algorithm"`
	CreatedAt  string `json:"created_at"`
}

func fetchMemory(conf cliConfig, shortID string) (remoteMemory, error) {
	var resp struct {
		Memory remoteMemory `json:"memory"`
	}
	err := apiCall(conf, http.MethodGet, "/api/recall?short_id="+url.QueryEscape(shortID), nil, &resp)
	return resp.Memory, err
}
