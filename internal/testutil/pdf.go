// Package testutil builds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"fmt"
	"strings"
)

// BuildPDF renders a minimal, uncompressed PDF with one page per entry.
// Empty entries produce pages without a content stream.
func BuildPDF(pages ...string) []byte {
	return build(pages, nil)
}

// BuildEncryptedPDF renders the same document protected by the standard
// security handler (revision 2, 40-bit RC4) with userPassword required to
// open it.
func BuildEncryptedPDF(userPassword string, pages ...string) []byte {
	return build(pages, newSecurity(userPassword, "owner-"+userPassword))
}

type object struct {
	dict     string
	stream   []byte
	isStream bool
}

func build(pages []string, sec *security) []byte {
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	objects := []object{
		{dict: "<< /Type /Catalog /Pages 2 0 R >>"},
		{dict: fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))},
		{dict: "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"},
	}

	for i, text := range pages {
		contentsRef := fmt.Sprintf(" /Contents %d 0 R", 5+2*i)
		var stream []byte
		if strings.TrimSpace(text) == "" {
			contentsRef = ""
		} else {
			stream = []byte(fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escape(text)))
		}
		if sec != nil {
			stream = sec.encrypt(5+2*i, stream)
		}
		objects = append(objects,
			object{dict: fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >>%s >>", contentsRef)},
			object{dict: fmt.Sprintf("<< /Length %d >>", len(stream)), stream: stream, isStream: true},
		)
	}

	trailer := ""
	if sec != nil {
		objects = append(objects, object{dict: fmt.Sprintf(
			"<< /Filter /Standard /V 1 /R 2 /Length 40 /O <%x> /U <%x> /P %d >>", sec.o, sec.u, sec.p)})
		trailer = fmt.Sprintf(" /Encrypt %d 0 R /ID [<%x> <%x>]", len(objects), sec.id, sec.id)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\n", i+1, obj.dict)
		if obj.isStream {
			buf.WriteString("stream\n")
			buf.Write(obj.stream)
			buf.WriteString("\nendstream\n")
		}
		buf.WriteString("endobj\n")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, trailer, xref)

	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// security holds the revision 2 standard handler entries and file key.
type security struct {
	key  []byte
	o, u []byte
	p    int32
	id   []byte
}

func newSecurity(userPassword, ownerPassword string) *security {
	s := &security{p: -44, id: []byte("docrag-fixture-1")}

	ownerKey := md5.Sum(pad(ownerPassword))
	c, _ := rc4.NewCipher(ownerKey[:5])
	s.o = make([]byte, 32)
	c.XORKeyStream(s.o, pad(userPassword))

	h := md5.New()
	h.Write(pad(userPassword))
	h.Write(s.o)
	h.Write([]byte{byte(s.p), byte(s.p >> 8), byte(s.p >> 16), byte(s.p >> 24)})
	h.Write(s.id)
	s.key = h.Sum(nil)[:5]

	c, _ = rc4.NewCipher(s.key)
	s.u = make([]byte, 32)
	c.XORKeyStream(s.u, passwordPad)
	return s
}

// encrypt applies the per-object RC4 key for object num, generation 0.
func (s *security) encrypt(num int, data []byte) []byte {
	h := md5.New()
	h.Write(s.key)
	h.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), 0, 0})
	c, _ := rc4.NewCipher(h.Sum(nil)[:len(s.key)+5])
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func pad(password string) []byte {
	return append([]byte(password), passwordPad...)[:32]
}
