package karnataka

import (
	"fmt"
	"strings"

	"legmirror/pkg/harvest"
	"legmirror/pkg/metadata"
)

const (
	Creator          = "Karnataka Legislative Assembly Secretariat"
	identifierPrefix = "karnatakalegislativeassembly.debates."
	fieldPrefix      = "kla"
	// Subjects are sometimes whole paragraphs.
	maxTitle = 250
)

// Identifier is the archive item name for a debate's page range.
func Identifier(book, start, end string) string {
	return identifierPrefix + book + "." + start + "." + end
}

// Transform makes one archive item per debate.
func Transform(raw *harvest.Raw) ([]*harvest.Artifact, error) {
	out := make([]*harvest.Artifact, 0, len(raw.Documents))
	for _, doc := range raw.Documents {
		book, start, end := doc.Fields["bookId"], doc.Fields["startPage"], doc.Fields["endPage"]
		if book == "" || start == "" || end == "" {
			return nil, fmt.Errorf("debate %q has no page range", doc.Key)
		}
		description := fmt.Sprintf("Karnataka Legislative Assembly Debates - Book %s, Pages %s-%s", book, start, end)

		m := metadata.New()
		m.Set(metadata.Creator, Creator)
		m.Set(metadata.Source, doc.SourceURL)
		m.Set(metadata.Language, "English", "Kannada")
		m.Set(metadata.Subject, "Karnataka Legislative Assembly")
		m.Set(metadata.Title, metadata.Truncate(firstNonEmpty(doc.Title, doc.Fields["debate_subject_eng"], description), maxTitle))
		m.Set(metadata.Description, description)
		m.Set(metadata.Date, sittingDate(doc.Fields["debate_section_date"]))
		m.AddPrefixed(fieldPrefix, doc.Fields)

		out = append(out, &harvest.Artifact{
			ID:       Identifier(book, start, end),
			Metadata: m,
			Files:    doc.Files,
		})
	}
	return out, nil
}

// sittingDate drops the time part of "1999-03-02T00:00:00".
func sittingDate(s string) string {
	if before, _, ok := strings.Cut(s, "T"); ok && len(before) == len("2006-01-02") {
		return before
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
