// Copyright 2025 Kadir Pekel
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

package tool

import "github.com/mitchellh/mapstructure"

// Decode decodes args into out, a pointer to a typed argument struct. A
// tool handler uses this to turn its declared Arguments map into the
// concrete struct matching its Parameters schema, rather than indexing
// the map by hand.
func Decode(args Arguments, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "tool",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(args))
}
