package mail

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// buildMIME renders the message as a multipart/mixed MIME document with the
// body as a text part and the CV as a base64 attachment.
func buildMIME(msg Message) string {
	boundary := "boundary_" + uuid.NewString()

	var b strings.Builder
	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"" + boundary + "\"\r\n")
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	if msg.Attachment != nil {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: " + msg.Attachment.MediaType + "; name=\"" + msg.Attachment.Filename + "\"\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + msg.Attachment.Filename + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString("\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString(msg.Attachment.Data))
		b.WriteString("\r\n")
	}

	b.WriteString("--" + boundary + "--")
	return b.String()
}

// base64URLEncode encodes the raw message the way the Gmail API expects:
// URL-safe alphabet, no padding.
func base64URLEncode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
