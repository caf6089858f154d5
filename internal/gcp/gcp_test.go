package gcp

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/kelurahandocs/internal/render"
)

func TestTemplateBucket_Load(t *testing.T) {
	var opened string
	b := &TemplateBucket{
		name:   "templates",
		prefix: "letters",
		open: func(_ context.Context, object string) (io.ReadCloser, error) {
			opened = object
			return io.NopCloser(strings.NewReader("PK docx")), nil
		},
	}

	data, err := b.Load(context.Background(), "SKU.docx")
	require.NoError(t, err)
	assert.Equal(t, "letters/SKU.docx", opened)
	assert.Equal(t, []byte("PK docx"), data)
}

func TestTemplateBucket_NotFound(t *testing.T) {
	b := &TemplateBucket{
		name: "templates",
		open: func(context.Context, string) (io.ReadCloser, error) {
			return nil, storage.ErrObjectNotExist
		},
	}

	_, err := b.Load(context.Background(), "MISSING.docx")
	assert.ErrorIs(t, err, render.ErrTemplateNotFound)

	_, err = b.Load(context.Background(), "../secret.docx")
	assert.ErrorIs(t, err, render.ErrTemplateNotFound)
}

func TestTemplateBucket_ReadFailure(t *testing.T) {
	b := &TemplateBucket{
		name: "templates",
		open: func(context.Context, string) (io.ReadCloser, error) {
			return nil, errors.New("permission denied")
		},
	}
	_, err := b.Load(context.Background(), "SKU.docx")
	require.Error(t, err)
	assert.NotErrorIs(t, err, render.ErrTemplateNotFound)
}

func TestFirestoreSettings_Setting(t *testing.T) {
	tests := []struct {
		name    string
		get     docGetter
		want    string
		wantOK  bool
		wantErr bool
	}{
		{
			name: "present",
			get:  func(context.Context, string) (*settingDoc, error) { return &settingDoc{Value: "abc"}, nil },
			want: "abc", wantOK: true,
		},
		{
			name: "missing document",
			get: func(context.Context, string) (*settingDoc, error) {
				return nil, status.Error(codes.NotFound, "no such document")
			},
		},
		{
			name: "empty value",
			get:  func(context.Context, string) (*settingDoc, error) { return &settingDoc{}, nil },
		},
		{
			name: "unavailable",
			get: func(context.Context, string) (*settingDoc, error) {
				return nil, status.Error(codes.Unavailable, "backend down")
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &FirestoreSettings{collection: "app_settings", get: tt.get}
			v, ok, err := s.Setting(context.Background(), "CONVERTAPI_SECRET")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
