package media

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const uploadFolder = "kasir-products"

type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(url string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary init: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, file io.Reader) (*Uploaded, error) {
	res, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{Folder: uploadFolder})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	return &Uploaded{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, publicID string) error {
	_, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	return nil
}
