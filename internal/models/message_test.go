package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyContentType(t *testing.T) {
	cases := []struct {
		contentType string
		want        MessageType
	}{
		{"image/png", TypeImage},
		{"image/jpeg", TypeImage},
		{"video/mp4", TypeVideo},
		{"application/pdf", TypePDF},
		{"application/vnd.ms-excel", TypeExcel},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", TypeExcel},
		{"application/msword", TypeWord},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", TypeWord},
		{"application/zip", TypeFile},
		{"text/plain", TypeFile},
		{"", TypeFile},
		{"IMAGE/PNG", TypeImage},
		{"image/png; charset=binary", TypeImage},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyContentType(tc.contentType), "content type %q", tc.contentType)
	}
}

func TestMessageTypeValid(t *testing.T) {
	for _, mt := range []MessageType{TypeText, TypeImage, TypeVideo, TypePDF, TypeExcel, TypeWord, TypeFile} {
		assert.True(t, mt.Valid(), "type %q", mt)
	}
	assert.False(t, MessageType("gif").Valid())
	assert.False(t, MessageType("").Valid())
}
