package rajyasabha

import (
	"legmirror/pkg/harvest"
	"legmirror/pkg/metadata"
)

const (
	Creator     = "Rajya Sabha Secretariat"
	fieldPrefix = "rsdebate"
)

// Transform maps one item page onto one archive item carrying all of the
// page's PDFs.
func Transform(raw *harvest.Raw) ([]*harvest.Artifact, error) {
	var out []*harvest.Artifact
	for _, doc := range raw.Documents {
		if len(doc.Files) == 0 {
			continue
		}

		m := metadata.New()
		m.Set(metadata.Creator, Creator)
		m.Set(metadata.Source, doc.SourceURL)
		m.Set(metadata.Language, "English", "Hindi")
		m.Set(metadata.Subject, "Parliament of India", "Rajya Sabha")

		title, date := doc.Fields["debate_title"], doc.Fields["debate_date"]
		switch {
		case title != "" && date != "":
			m.Set(metadata.Title, title+" ("+date+")")
		case title != "":
			m.Set(metadata.Title, title)
		default:
			m.Set(metadata.Title, "Rajya Sabha debate "+doc.Key)
		}
		m.Set(metadata.Date, date)
		m.AddPrefixed(fieldPrefix, doc.Fields)
		m.Set(metadata.Description, "'"+m.Get(metadata.Title)+"' from the RS Debates Digital Library")
		m.Set(fieldPrefix+"_document_url", doc.Files[0].URL)

		out = append(out, &harvest.Artifact{
			ID:       Identifier(doc.Key),
			Metadata: m,
			Files:    doc.Files,
		})
	}
	return out, nil
}
