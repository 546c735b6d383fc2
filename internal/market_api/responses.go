package market_api

import (
	"io"
	"net/http"
	"os"
	"strconv"
)

const (
	textType = "text/plain"
	pngType  = "image/png"
	pdfType  = "application/pdf"
)

type plainText string

func (t plainText) Respond(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := io.WriteString(w, string(t))
	return err
}

type pngImage []byte

func (img pngImage) Respond(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", pngType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(img)
	return err
}

// pdfFile streams a stored ticket and closes it.
type pdfFile struct {
	f *os.File
}

func (p pdfFile) Respond(w http.ResponseWriter, r *http.Request) error {
	defer p.f.Close()
	st, err := p.f.Stat()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", pdfType)
	http.ServeContent(w, r, "", st.ModTime(), p.f)
	return nil
}
