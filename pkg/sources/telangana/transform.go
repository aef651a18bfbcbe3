package telangana

import (
	"fmt"
	"regexp"
	"strings"

	"legmirror/pkg/harvest"
	"legmirror/pkg/metadata"
)

const (
	Creator          = "Telangana State Legislature"
	identifierPrefix = "telanganalegislature."
	fieldPrefix      = "tsl"
)

var unsafeIdentifier = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Identifier is telanganalegislature.{house}.{file stem}, with dashes in the
// stem turned into dots.
func Identifier(house, fileName string) string {
	stem := fileName
	if strings.HasSuffix(strings.ToLower(stem), ".pdf") {
		stem = stem[:len(stem)-len(".pdf")]
	}
	stem = strings.ReplaceAll(strings.ReplaceAll(stem, "Uploads/", ""), "-", ".")
	stem = unsafeIdentifier.ReplaceAllString(strings.ReplaceAll(stem, " ", "_"), "_")
	return identifierPrefix + strings.ToLower(house) + "." + stem
}

// Transform makes one archive item per sitting day.
func Transform(raw *harvest.Raw) ([]*harvest.Artifact, error) {
	out := make([]*harvest.Artifact, 0, len(raw.Documents))
	for _, doc := range raw.Documents {
		house := doc.Fields["house"]
		if house == "" || len(doc.Files) == 0 {
			return nil, fmt.Errorf("document %q lacks house or file", doc.Key)
		}

		m := metadata.New()
		m.Set(metadata.Creator, Creator)
		m.Set(metadata.Source, doc.SourceURL)
		m.Set(metadata.Language, "Telugu", "English")
		m.Set(metadata.Subject, Creator)
		m.Set(metadata.Title, doc.Title)
		m.Set(metadata.Description, fmt.Sprintf("%s %s proceedings - %s, %s, %s, Day %s",
			Creator, house, doc.Fields["term"], doc.Fields["session"], doc.Fields["sitting"], doc.Fields["day"]))
		m.Set(metadata.Date, isoDate(doc.Key))
		m.AddPrefixed(fieldPrefix, doc.Fields)

		out = append(out, &harvest.Artifact{
			ID:       Identifier(house, doc.Key),
			Metadata: m,
			Files:    doc.Files,
		})
	}
	return out, nil
}

// isoDate turns the first dd-mm-yyyy (or dd_mm_yyyy) in a file name into
// yyyy-mm-dd.
func isoDate(name string) string {
	m := fileDate.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[3] + "-" + m[2] + "-" + m[1]
}

var fileDate = regexp.MustCompile(`(\d{2})[-_](\d{2})[-_](\d{4})`)
