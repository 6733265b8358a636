package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "no such key", err: &types.NoSuchKey{}, want: true},
		{name: "wrapped not found", err: fmt.Errorf("head: %w", &types.NotFound{}), want: true},
		{name: "no such bucket", err: &types.NoSuchBucket{}, want: true},
		{name: "generic api not found", err: &smithy.GenericAPIError{Code: "NotFound"}, want: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: false},
		{name: "plain error", err: fmt.Errorf("connection reset"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

func TestS3FileProviderWithoutPrefix(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	p := NewS3FileProvider("bucket", "", client)

	require.NoError(t, p.Write(ctx, "default/npcs.json", []byte("{}")))
	assert.Contains(t, client.objects, "bucket/default/npcs.json")

	files, err := p.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"default/npcs.json"}, files)
}
