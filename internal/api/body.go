package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

// Body is a request payload. Encode returns the wire bytes and the
// Content-Type the encoder produced.
type Body interface {
	Encode() (io.Reader, string, error)
}

type jsonBody struct{ v any }

// JSON encodes v as application/json.
func JSON(v any) Body { return jsonBody{v: v} }

func (b jsonBody) Encode() (io.Reader, string, error) {
	data, err := json.Marshal(b.v)
	if err != nil {
		return nil, "", fmt.Errorf("encode json body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

// Field is one ordered form field of a multipart body.
type Field struct {
	Name  string
	Value string
}

// File is the file part of a multipart body.
type File struct {
	Field   string
	Name    string
	Content []byte
}

type multipartBody struct {
	fields []Field
	file   *File
}

// Multipart builds a multipart/form-data body. The boundary, and therefore
// the Content-Type, is owned by the encoder; callers never set it.
func Multipart(fields []Field, file *File) Body {
	return multipartBody{fields: fields, file: file}
}

func (b multipartBody) Encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range b.fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}
	if b.file != nil {
		field := b.file.Field
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, b.file.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(b.file.Content); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func isMultipart(b Body) bool {
	_, ok := b.(multipartBody)
	return ok
}
