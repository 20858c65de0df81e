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

import "strings"

var (
	resultKeys = []string{"url", "result_url", "image_url", "output", "outputs"}
	nestedKeys = []string{"url", "image_url", "result_url"}
)

// extractURLs pulls candidate image URLs out of a decoded JSON response.
// Providers disagree on shape: the URL may be a string, a list of strings,
// an object or a list of objects under one of several keys.
func extractURLs(data any) []string {
	switch v := data.(type) {
	case string:
		return nonEmpty([]string{v})
	case []any:
		return fromList(v)
	case map[string]any:
		for _, key := range resultKeys {
			val, ok := v[key]
			if !ok {
				continue
			}
			if urls := fromValue(val); len(urls) > 0 {
				return urls
			}
		}
	}
	return nil
}

func fromValue(val any) []string {
	switch v := val.(type) {
	case string:
		return nonEmpty([]string{v})
	case []any:
		return fromList(v)
	case map[string]any:
		return fromObject(v)
	}
	return nil
}

func fromList(list []any) []string {
	var urls []string
	for _, item := range list {
		switch v := item.(type) {
		case string:
			urls = append(urls, v)
		case map[string]any:
			urls = append(urls, fromObject(v)...)
		}
	}
	return nonEmpty(urls)
}

func fromObject(obj map[string]any) []string {
	for _, key := range nestedKeys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return []string{s}
		}
	}
	return nil
}

func nonEmpty(urls []string) []string {
	out := urls[:0]
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
