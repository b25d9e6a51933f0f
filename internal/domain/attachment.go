package domain

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Attachment is the normalized shape of one uploaded file reference.
type Attachment struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// AttachmentList decodes the loosely shaped attachment blobs stored on
// tickets and messages. Rows written by older clients carry bare URL
// strings, single objects, or arrays of either; unrecognized shapes
// degrade to an empty list rather than failing the row.
type AttachmentList []Attachment

// UnmarshalJSON normalizes whatever shape the column holds. It never
// returns an error: a malformed blob must not poison ticket decoding.
func (l *AttachmentList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := jsoniter.Unmarshal(data, &raw); err != nil {
		*l = AttachmentList{}
		return nil
	}
	*l = NormalizeAttachments(raw)
	return nil
}

// NormalizeAttachments extracts attachments from a decoded JSON value.
func NormalizeAttachments(raw any) AttachmentList {
	switch v := raw.(type) {
	case nil:
		return AttachmentList{}
	case []any:
		out := make(AttachmentList, 0, len(v))
		for _, item := range v {
			if att, ok := attachmentFromValue(item); ok {
				out = append(out, att)
			}
		}
		return out
	default:
		if att, ok := attachmentFromValue(raw); ok {
			return AttachmentList{att}
		}
		return AttachmentList{}
	}
}

func attachmentFromValue(v any) (Attachment, bool) {
	switch item := v.(type) {
	case string:
		if item == "" {
			return Attachment{}, false
		}
		return Attachment{URL: item}, true
	case map[string]any:
		att := Attachment{
			Name:     stringField(item, "name", "file_name", "filename"),
			URL:      stringField(item, "url", "href", "storage_key"),
			MimeType: stringField(item, "mime_type", "content_type", "type"),
		}
		if size, ok := item["size_bytes"].(float64); ok {
			att.SizeBytes = int64(size)
		} else if size, ok := item["size"].(float64); ok {
			att.SizeBytes = int64(size)
		}
		if att.URL == "" && att.Name == "" {
			return Attachment{}, false
		}
		return att, true
	default:
		return Attachment{}, false
	}
}

// ResolutionNote is one entry in a ticket's ordered resolution trail.
type ResolutionNote struct {
	Note      string    `json:"note"`
	AdminID   string    `json:"admin_id"`
	AdminName string    `json:"admin_name"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolutionNoteList decodes the resolution-notes column with the same
// degrade-to-empty policy as AttachmentList.
type ResolutionNoteList []ResolutionNote

// UnmarshalJSON normalizes the stored shape; it never returns an error.
func (l *ResolutionNoteList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := jsoniter.Unmarshal(data, &raw); err != nil {
		*l = ResolutionNoteList{}
		return nil
	}
	*l = NormalizeResolutionNotes(raw)
	return nil
}

// NormalizeResolutionNotes extracts notes from a decoded JSON value.
func NormalizeResolutionNotes(raw any) ResolutionNoteList {
	items, ok := raw.([]any)
	if !ok {
		if raw == nil {
			return ResolutionNoteList{}
		}
		items = []any{raw}
	}
	out := make(ResolutionNoteList, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		note := ResolutionNote{
			Note:      stringField(entry, "note", "text", "body"),
			AdminID:   stringField(entry, "admin_id", "admin"),
			AdminName: stringField(entry, "admin_name"),
		}
		if ts := stringField(entry, "created_at", "timestamp"); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				note.CreatedAt = parsed
			}
		}
		if note.Note == "" {
			continue
		}
		out = append(out, note)
	}
	return out
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := m[key].(string); ok && val != "" {
			return val
		}
	}
	return ""
}
