package conversion

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// InspectPDF parses data with pdfcpu in relaxed mode and returns its page count.
func InspectPDF(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, errors.New("empty document")
	}
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("failed to ensure page count: %w", err)
	}
	if ctx.PageCount < 1 {
		return 0, errors.New("document has no pages")
	}
	return ctx.PageCount, nil
}
