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
)

const maxResponseBytes = 1 << 20

// HTTPProvider posts the prompt to a generic render endpoint and extracts the
// image URL from whatever JSON shape it answers with.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

type renderRequest struct {
	Prompt string   `json:"prompt"`
	Image  string   `json:"image,omitempty"`
	Images []string `json:"images,omitempty"`
}

func NewHTTPProvider(endpoint string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{endpoint: endpoint, client: client}
}

func (p *HTTPProvider) Name() string {
	return "render"
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request) ([]string, error) {
	payload := renderRequest{Prompt: req.Prompt}
	if len(req.ReferenceImages) > 0 {
		payload.Image = req.ReferenceImages[0]
		payload.Images = req.ReferenceImages
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("unable to encode render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(p.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(p.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyResponse(p.Name(), resp.StatusCode, string(respBody))
	}

	var data any
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, fmt.Errorf("%s returned invalid json: %w: %w", p.Name(), ErrUpstreamUnavailable, err)
	}

	urls := extractURLs(data)
	if len(urls) == 0 {
		// some endpoints answer 200 with an error body
		if obj, ok := data.(map[string]any); ok {
			if msg, ok := obj["error"].(string); ok && msg != "" {
				return nil, classifyFailureText(p.Name(), msg)
			}
		}
		return nil, fmt.Errorf("%s response has no image url (%s): %w",
			p.Name(), truncate(string(respBody), 200), ErrUpstreamUnavailable)
	}
	return urls, nil
}
