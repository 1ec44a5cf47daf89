// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package repl

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// moduleMagic is the binary module preamble ("\0asm").
var moduleMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// FetchModule reads a module binary from a local path or an http(s) URL. The
// preamble is checked here so a typo'd source reports "not a module" instead
// of a parse failure on unrelated bytes.
func FetchModule(source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch u.Scheme {
	case "http", "https":
		data, err = fetchHTTP(u)
	case "file":
		data, err = readLocal(u.Path)
	case "":
		data, err = readLocal(source)
	default:
		return nil, fmt.Errorf("unsupported url scheme: %s", u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(data, moduleMagic) {
		return nil, fmt.Errorf("%s is not a binary module", source)
	}
	return data, nil
}

func readLocal(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a module", path)
	}
	return os.ReadFile(path)
}

func fetchHTTP(u *url.URL) ([]byte, error) {
	response, err := http.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected http status: %s", response.Status)
	}
	return io.ReadAll(response.Body)
}
