package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderLineImagePath(t *testing.T) {
	path, err := OrderLineImagePath("VN-202501150001", 2, "ao-thun.png")
	require.NoError(t, err)
	assert.Equal(t, "orders/VN-202501150001/2-ao-thun.png", path)

	_, err = OrderLineImagePath("../bad", 0, "x.png")
	require.Error(t, err)
	_, err = OrderLineImagePath("VN-1", 0, "")
	require.Error(t, err)
}

func TestParseRef(t *testing.T) {
	bucket, object, err := ParseRef("gs://catalog/units/u1/main.jpg", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "catalog", bucket)
	assert.Equal(t, "units/u1/main.jpg", object)

	bucket, object, err = ParseRef("/units/u2.jpg", "catalog")
	require.NoError(t, err)
	assert.Equal(t, "catalog", bucket)
	assert.Equal(t, "units/u2.jpg", object)

	for _, ref := range []string{"", "gs://bucket-only", "units/../secret"} {
		_, _, err := ParseRef(ref, "catalog")
		assert.Error(t, err, ref)
	}
}

type copyCall struct {
	srcBucket, srcObject, dstBucket, dstObject string
}

type fakeCopier struct {
	calls []copyCall
	err   error
}

func (f *fakeCopier) CopyObject(_ context.Context, sb, so, db, do string) error {
	f.calls = append(f.calls, copyCall{sb, so, db, do})
	return f.err
}

func TestArchiverCopiesIntoOrderFolder(t *testing.T) {
	copier := &fakeCopier{}
	archiver, err := NewArchiver(copier, "catalog", "orders-archive")
	require.NoError(t, err)

	ref, err := archiver.ArchiveLineImage(context.Background(), "VN-202501150001", 0, "units/u1/main.jpg")
	require.NoError(t, err)
	assert.Equal(t, "gs://orders-archive/orders/VN-202501150001/0-main.jpg", ref)
	require.Len(t, copier.calls, 1)
	assert.Equal(t, copyCall{"catalog", "units/u1/main.jpg", "orders-archive", "orders/VN-202501150001/0-main.jpg"}, copier.calls[0])
}

func TestArchiverPropagatesCopyFailure(t *testing.T) {
	archiver, err := NewArchiver(&fakeCopier{err: errors.New("denied")}, "catalog", "")
	require.NoError(t, err)

	_, err = archiver.ArchiveLineImage(context.Background(), "VN-1", 0, "a.png")
	require.Error(t, err)
}

func TestNewArchiverValidates(t *testing.T) {
	_, err := NewArchiver(nil, "catalog", "")
	require.Error(t, err)
	_, err = NewArchiver(&fakeCopier{}, " ", "")
	require.Error(t, err)
}
