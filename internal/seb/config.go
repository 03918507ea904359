package seb

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// NewSecret returns a fresh lockdown secret. Secrets are generated
// server-side at quiz creation and are never echoed by authoring reads;
// the config export below is the one authorized surface that reveals the
// config key.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("seb secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// BlobStore stages generated config files. Satisfied by storage.FSStore.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error)
	Get(key string) (io.ReadCloser, error)
}

// ConfigExport describes the .seb client settings file for one quiz.
type ConfigExport struct {
	QuizID    string
	QuizTitle string
	StartURL  string
	QuitURL   string
	ConfigKey string
}

// FileName mirrors the download name the exam client expects:
// "<title>_seb_config.seb" with non-alphanumerics collapsed.
func (c ConfigExport) FileName() string {
	var b strings.Builder
	for _, r := range strings.ToLower(c.QuizTitle) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String() + "_seb_config.seb"
}

// plist fragments for the SEB client settings dictionary.
type plistDoc struct {
	XMLName xml.Name  `xml:"plist"`
	Version string    `xml:"version,attr"`
	Dict    plistDict `xml:"dict"`
}

type plistDict struct {
	Entries []plistEntry
}

type plistEntry struct {
	Key   string
	Value any // string or bool
}

func (d plistDict) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, en := range d.Entries {
		if err := e.EncodeElement(en.Key, xml.StartElement{Name: xml.Name{Local: "key"}}); err != nil {
			return err
		}
		switch v := en.Value.(type) {
		case string:
			if err := e.EncodeElement(v, xml.StartElement{Name: xml.Name{Local: "string"}}); err != nil {
				return err
			}
		case bool:
			name := "false"
			if v {
				name = "true"
			}
			el := xml.StartElement{Name: xml.Name{Local: name}}
			if err := e.EncodeToken(el); err != nil {
				return err
			}
			if err := e.EncodeToken(el.End()); err != nil {
				return err
			}
		default:
			return fmt.Errorf("plist: unsupported value %T", en.Value)
		}
	}
	return e.EncodeToken(start.End())
}

// WriteConfig renders the .seb plist and stages it in the blob store
// under seb-configs/<quizID>.seb, returning the storage key.
func WriteConfig(bs BlobStore, c ConfigExport) (string, error) {
	doc := plistDoc{
		Version: "1.0",
		Dict: plistDict{Entries: []plistEntry{
			{Key: "startURL", Value: c.StartURL},
			{Key: "quitURL", Value: c.QuitURL},
			{Key: "sebConfigPurpose", Value: "startingExam"},
			{Key: "browserExamKeySalt", Value: c.ConfigKey},
			{Key: "allowQuit", Value: c.QuitURL != ""},
			{Key: "quitURLConfirm", Value: true},
		}},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	body := xml.Header +
		"<!DOCTYPE plist PUBLIC \"-//Apple//DTD PLIST 1.0//EN\" \"http://www.apple.com/DTDs/PropertyList-1.0.dtd\">\n" +
		string(out) + "\n"

	key := "seb-configs/" + c.QuizID + ".seb"
	if _, err := bs.Put(key, strings.NewReader(body)); err != nil {
		return "", err
	}
	return key, nil
}
