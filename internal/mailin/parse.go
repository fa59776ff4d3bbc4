package mailin

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"tecky-admin/internal/store"
)

const maxBodyBytes = 6 << 20

var (
	ErrSubject    = errors.New("mailin: subject does not match")
	ErrIncomplete = errors.New("mailin: message lacks name, email or body")
)

// Message is a parsed RFC822 message reduced to what contact ingest needs.
type Message struct {
	MessageID string
	From      *mail.Address
	ReplyTo   *mail.Address
	Subject   string
	Date      time.Time
	Text      string
	HTML      string
}

// ParseMessage decodes headers and picks the largest text/plain and
// text/html parts out of raw.
func ParseMessage(raw []byte) (Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}
	h := msg.Header

	var m Message
	m.MessageID = strings.TrimSpace(h.Get("Message-Id"))
	m.Subject = decodeHeader(h.Get("Subject"))
	if d, err := h.Date(); err == nil {
		m.Date = d
	}
	if a, err := h.AddressList("From"); err == nil && len(a) > 0 {
		m.From = a[0]
	}
	if a, err := h.AddressList("Reply-To"); err == nil && len(a) > 0 {
		m.ReplyTo = a[0]
	}

	body, err := io.ReadAll(io.LimitReader(msg.Body, maxBodyBytes))
	if err != nil {
		return Message{}, fmt.Errorf("read body: %w", err)
	}
	m.Text, m.HTML = textParts(h.Get("Content-Type"), h.Get("Content-Transfer-Encoding"), body)
	return m, nil
}

func textParts(contentType, cte string, body []byte) (plain, htmlBody string) {
	cte = strings.ToLower(strings.TrimSpace(cte))
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(decodeTransfer(body, cte)), ""
	}
	mediaType = strings.ToLower(mediaType)

	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			b, _ := io.ReadAll(io.LimitReader(p, maxBodyBytes))
			pl, ht := textParts(p.Header.Get("Content-Type"), p.Header.Get("Content-Transfer-Encoding"), b)
			if len(pl) > len(plain) {
				plain = pl
			}
			if len(ht) > len(htmlBody) {
				htmlBody = ht
			}
		}
		return plain, htmlBody
	}

	s := string(decodeTransfer(body, cte))
	switch {
	case strings.HasPrefix(mediaType, "text/html"):
		return "", s
	case strings.HasPrefix(mediaType, "text/"):
		return s, ""
	default:
		// attachments
		return "", ""
	}
}

func decodeTransfer(b []byte, cte string) []byte {
	var r io.Reader
	switch cte {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, bytes.NewReader(b))
	case "quoted-printable":
		r = quotedprintable.NewReader(bytes.NewReader(b))
	default:
		return b
	}
	out, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil && len(out) == 0 {
		return b
	}
	return out
}

func decodeHeader(s string) string {
	s = strings.TrimSpace(s)
	out, err := new(mime.WordDecoder).DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

// HTMLToText flattens an HTML body into lines. Two-cell table rows become
// "label: value" lines so tabular form notifications read like plain ones.
func HTMLToText(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, head").Remove()

	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td, th")
		if cells.Length() != 2 {
			return
		}
		label := strings.TrimSuffix(cleanLine(cells.First().Text()), ":")
		if label == "" {
			return
		}
		tr.SetText(label + ": " + strings.TrimSpace(cells.Last().Text()))
	})

	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithNodes(newline())
	})
	doc.Find("p, div, li, tr, h1, h2, h3, h4, table").Each(func(_ int, s *goquery.Selection) {
		s.AppendNodes(newline())
	})

	var lines []string
	for _, l := range strings.Split(doc.Text(), "\n") {
		if l = cleanLine(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func newline() *html.Node { return &html.Node{Type: html.TextNode, Data: "\n"} }

func cleanLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ExtractContact turns a parsed message into a contact when its subject
// starts with prefix. Labeled "Name:", "Email:", "Phone:" and "Message:"
// lines win. Otherwise the sender address and the whole body are used.
func ExtractContact(m Message, prefix string) (store.ContactInput, error) {
	subj := strings.TrimSpace(m.Subject)
	if prefix != "" && !strings.HasPrefix(strings.ToLower(subj), strings.ToLower(prefix)) {
		return store.ContactInput{}, ErrSubject
	}

	body := strings.TrimSpace(m.Text)
	if body == "" && m.HTML != "" {
		t, err := HTMLToText(m.HTML)
		if err != nil {
			return store.ContactInput{}, fmt.Errorf("html body: %w", err)
		}
		body = t
	}

	in := fieldsFromBody(body)
	sender := m.ReplyTo
	if sender == nil {
		sender = m.From
	}
	if in.Email == "" && sender != nil {
		in.Email = sender.Address
	}
	if in.Name == "" && sender != nil {
		in.Name = sender.Name
	}
	if in.Name == "" {
		if at := strings.Index(in.Email, "@"); at > 0 {
			in.Name = in.Email[:at]
		}
	}
	if in.Message == "" {
		in.Message = body
	}

	in.SourceID = m.MessageID
	in.SubmittedAt = m.Date
	if in.Name == "" || in.Email == "" || strings.TrimSpace(in.Message) == "" {
		return store.ContactInput{}, ErrIncomplete
	}
	return in, nil
}

// fieldsFromBody reads labeled lines. Everything after a "Message:" label
// belongs to the message.
func fieldsFromBody(body string) store.ContactInput {
	var in store.ContactInput
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	for i, line := range lines {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "name", "full name":
			in.Name = value
		case "email", "e-mail":
			in.Email = strings.Trim(value, "<>")
		case "phone", "telephone":
			in.Phone = value
		case "message":
			rest := append([]string{value}, lines[i+1:]...)
			in.Message = strings.TrimSpace(strings.Join(rest, "\n"))
			return in
		}
	}
	return in
}
