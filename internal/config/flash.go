/*
 * pandos - Flash backing-store manifest.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FlashEntry describes one ASID's simulated flash device: how many
// blocks it has and, optionally, a file to seed its initial contents
// from (useful for feeding a fixed user program image to a test).
type FlashEntry struct {
	ASID   int    `yaml:"asid"`
	Blocks int    `yaml:"blocks"`
	File   string `yaml:"file,omitempty"`
}

// FlashManifest is the parsed form of flash.yaml: a list of per-ASID
// backing-store records. Structured/nested data like this is parsed
// with a real YAML decoder rather than extended onto the flat boot
// config grammar.
type FlashManifest struct {
	Devices []FlashEntry `yaml:"devices"`
}

// LoadFlashManifest reads and decodes a flash manifest file.
func LoadFlashManifest(path string) (*FlashManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read flash manifest %s: %w", path, err)
	}
	var m FlashManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parse flash manifest %s: %w", path, err)
	}
	for _, d := range m.Devices {
		if d.ASID < 1 || d.ASID > 8 {
			return nil, fmt.Errorf("config: flash manifest %s: asid %d out of range [1,8]", path, d.ASID)
		}
	}
	return &m, nil
}

// Backing materializes one entry's backing store as a byte slice
// sized blocks*PageSize, reading File's contents into the front of it
// when present.
func (e FlashEntry) Backing(pageSize int) ([]byte, error) {
	buf := make([]byte, e.Blocks*pageSize)
	if e.File == "" {
		return buf, nil
	}
	data, err := os.ReadFile(e.File)
	if err != nil {
		return nil, fmt.Errorf("config: read flash image %s: %w", e.File, err)
	}
	copy(buf, data)
	return buf, nil
}
