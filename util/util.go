// Copyright 2023 The Cuber Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// GenTmpPath create a temporary path
func GenTmpPath() (string, error) {
	id := uuid.NewString()
	path := os.TempDir() + "/" + id
	if err := os.RemoveAll(path); err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// ConstructPath joins a base directory with path components.
func ConstructPath(dir string, elem ...string) string {
	parts := append([]string{dir}, elem...)
	return filepath.Join(parts...)
}

// TrimTrailingSlashes removes all trailing path separators.
func TrimTrailingSlashes(path string) string {
	for len(path) > 0 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}
