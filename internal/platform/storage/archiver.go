package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Archiver snapshots line images so later catalog edits do not change what an order shows.
type Archiver struct {
	copier       ObjectCopier
	imagesBucket string
	ordersBucket string
}

// NewArchiver constructs an Archiver. ordersBucket defaults to imagesBucket.
func NewArchiver(copier ObjectCopier, imagesBucket, ordersBucket string) (*Archiver, error) {
	if copier == nil {
		return nil, errors.New("storage archiver: copier is required")
	}
	imagesBucket = strings.TrimSpace(imagesBucket)
	if imagesBucket == "" {
		return nil, errors.New("storage archiver: images bucket is required")
	}
	ordersBucket = strings.TrimSpace(ordersBucket)
	if ordersBucket == "" {
		ordersBucket = imagesBucket
	}
	return &Archiver{copier: copier, imagesBucket: imagesBucket, ordersBucket: ordersBucket}, nil
}

// ArchiveLineImage copies imageRef to the order archive and returns the archived reference.
func (a *Archiver) ArchiveLineImage(ctx context.Context, invoiceCode string, position int, imageRef string) (string, error) {
	bucket, object, err := ParseRef(imageRef, a.imagesBucket)
	if err != nil {
		return "", err
	}
	dest, err := OrderLineImagePath(invoiceCode, position, baseName(object))
	if err != nil {
		return "", err
	}
	if err := a.copier.CopyObject(ctx, bucket, object, a.ordersBucket, dest); err != nil {
		return "", fmt.Errorf("storage: archive %s: %w", imageRef, err)
	}
	return Ref(a.ordersBucket, dest), nil
}
