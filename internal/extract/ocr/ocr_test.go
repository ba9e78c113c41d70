package ocr

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecognizeImageSingleCall(t *testing.T) {
	var mimes []string
	v := newVertex(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		mimes = append(mimes, mimeType)
		return "```markdown\n# Notice\n\nAmount of the **debt**: $500\n```", nil
	}, 2)
	v.split = func([]byte) ([][]byte, error) {
		t.Fatal("images must not be split")
		return nil, nil
	}

	text, err := v.Recognize(context.Background(), []byte("img"), "image/png")

	require.NoError(t, err)
	assert.Equal(t, "Notice\nAmount of the debt: $500", text)
	assert.Equal(t, []string{"image/png"}, mimes)
}

func TestRecognizePDFKeepsPageOrderAndSkipsFailedPages(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	v := newVertex(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if string(data) == "p2" {
			return "", errors.New("quota")
		}
		return "text of " + string(data), nil
	}, 2)
	v.split = func([]byte) ([][]byte, error) {
		return [][]byte{[]byte("p1"), []byte("p2"), []byte("p3")}, nil
	}

	text, err := v.Recognize(context.Background(), []byte("pdf"), mimePDF)

	require.NoError(t, err)
	assert.Equal(t, "text of p1\n\ntext of p3", text)
	assert.Equal(t, 3, calls)
}

func TestRecognizePDFAllPagesFail(t *testing.T) {
	v := newVertex(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		return "I am unable to help with that.", nil
	}, 1)
	v.split = func([]byte) ([][]byte, error) { return [][]byte{[]byte("a"), []byte("b")}, nil }

	_, err := v.Recognize(context.Background(), []byte("pdf"), mimePDF)

	assert.ErrorIs(t, err, ErrRefused)
}

func TestRecognizePDFSplitFailureSendsWholeFile(t *testing.T) {
	var got []byte
	v := newVertex(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		got = data
		return "whole", nil
	}, 1)
	v.split = func([]byte) ([][]byte, error) { return nil, errors.New("corrupt") }

	text, err := v.Recognize(context.Background(), []byte("original"), mimePDF)

	require.NoError(t, err)
	assert.Equal(t, "whole", text)
	assert.Equal(t, "original", string(got))
}

func TestSplitPDFRejectsGarbage(t *testing.T) {
	_, err := SplitPDF([]byte("not a pdf"))
	assert.Error(t, err)
}
