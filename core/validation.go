// Copyright 2025 Poiesic Systems
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


package core

import (
	"fmt"
	"strings"
)

// ValidateDocumentInput validates caller-supplied document input.
//
// Validation rules:
//   - Input must not be nil
//   - Text must contain at least one non-whitespace character
//
// Every other field is optional and defaulted during ingestion.
func ValidateDocumentInput(input *DocumentInput) error {
	if input == nil {
		return fmt.Errorf("%w: input is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(input.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyText)
	}

	return nil
}

// ValidateCorpusRecord validates a reference corpus record.
//
// Validation rules:
//   - Name must not be empty
//   - Collection must not be empty
//
// An empty ID is allowed; the store derives one from the collection and name.
func ValidateCorpusRecord(record *CorpusRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidCorpusRecord)
	}

	if strings.TrimSpace(record.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCorpusRecord, ErrEmptyName)
	}

	if strings.TrimSpace(record.Collection) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCorpusRecord, ErrEmptyCollection)
	}

	return nil
}

// ValidateChunking checks that a chunk window can advance.
func ValidateChunking(size, overlap int) error {
	if size < 1 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}
	return nil
}
