/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultReplicateURL   = "https://api.replicate.com"
	DefaultReplicateModel = "black-forest-labs/flux-schnell"
)

// ReplicateProvider runs predictions against the Replicate HTTP API. It asks
// the API to hold the connection open until the prediction finishes and
// falls back to polling when it does not.
type ReplicateProvider struct {
	baseURL      string
	token        string
	model        string
	pollInterval time.Duration
	client       *http.Client
}

type replicatePrediction struct {
	Id     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
	Urls   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

type replicateRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

func NewReplicateProvider(baseURL, token, model string, pollInterval time.Duration, client *http.Client) *ReplicateProvider {
	if baseURL == "" {
		baseURL = DefaultReplicateURL
	}
	if model == "" {
		model = DefaultReplicateModel
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ReplicateProvider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		model:        model,
		pollInterval: pollInterval,
		client:       client,
	}
}

func (p *ReplicateProvider) Name() string {
	return "replicate"
}

func (p *ReplicateProvider) Generate(ctx context.Context, req Request) ([]string, error) {
	input := map[string]any{"prompt": req.Prompt}
	if len(req.ReferenceImages) > 0 {
		input["image"] = req.ReferenceImages[0]
		input["image_input"] = req.ReferenceImages
	}

	// owner/name:version pins a version, owner/name runs the latest one
	endpoint := fmt.Sprintf("%s/v1/models/%s/predictions", p.baseURL, p.model)
	body := replicateRequest{Input: input}
	if name, version, ok := strings.Cut(p.model, ":"); ok {
		endpoint = p.baseURL + "/v1/predictions"
		body.Version = version
		zap.L().Debug("Using pinned replicate model version", zap.String("model", name), zap.String("version", version))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("unable to encode prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("unable to build prediction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait")

	prediction, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	for {
		switch prediction.Status {
		case "succeeded":
			urls := extractURLs(prediction.Output)
			if len(urls) == 0 {
				urls = extractURLs(map[string]any{"output": prediction.Output})
			}
			return urls, nil
		case "failed":
			return nil, classifyFailureText(p.Name(), errorText(prediction.Error))
		case "canceled":
			return nil, fmt.Errorf("%s prediction %s canceled: %w", p.Name(), prediction.Id, ErrUpstreamUnavailable)
		}

		if prediction.Urls.Get == "" {
			return nil, fmt.Errorf("%s prediction %s has no poll url: %w", p.Name(), prediction.Id, ErrUpstreamUnavailable)
		}

		select {
		case <-ctx.Done():
			return nil, classifyTransport(p.Name(), ctx.Err())
		case <-time.After(p.pollInterval):
		}

		pollReq, err := http.NewRequestWithContext(ctx, http.MethodGet, prediction.Urls.Get, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to build poll request: %w", err)
		}
		if prediction, err = p.do(pollReq); err != nil {
			return nil, err
		}
	}
}

func (p *ReplicateProvider) do(req *http.Request) (*replicatePrediction, error) {
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransport(p.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(p.Name(), err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, classifyResponse(p.Name(), resp.StatusCode, string(body))
	}

	var prediction replicatePrediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return nil, fmt.Errorf("%s returned invalid json: %w: %w", p.Name(), ErrUpstreamUnavailable, err)
	}
	return &prediction, nil
}

func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return "prediction failed"
	case string:
		return e
	default:
		b, _ := json.Marshal(e)
		return string(b)
	}
}
