package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gallerist/token-ingest/internal/domain"
)

// DimensionInput carries every signal a provider record may hold about the
// pixel dimensions of its primary media asset
type DimensionInput struct {
	// StructuredWidth/Height come from a provider's typed image-detail fields
	StructuredWidth  int
	StructuredHeight int
	// Attributes are the record's trait pairs
	Attributes []domain.Attribute
	// FreeText is any field that may embed a "WxH" pattern (medium, format...)
	FreeText []string
}

// dimensionResolver is one step in the extraction chain
type dimensionResolver func(in DimensionInput) *domain.Dimensions

var dimensionChain = []dimensionResolver{
	fromStructuredFields,
	fromTraitPair,
	fromFreeTextPattern,
}

// ResolveDimensions tries each extraction heuristic in priority order and
// returns the first successful match, or nil when nothing applies
func ResolveDimensions(in DimensionInput) *domain.Dimensions {
	for _, resolve := range dimensionChain {
		if dims := resolve(in); dims != nil {
			return dims
		}
	}
	return nil
}

func fromStructuredFields(in DimensionInput) *domain.Dimensions {
	if in.StructuredWidth > 0 && in.StructuredHeight > 0 {
		return &domain.Dimensions{Width: in.StructuredWidth, Height: in.StructuredHeight}
	}
	return nil
}

var widthTraitNames = map[string]bool{"width": true, "image width": true, "pixel width": true}
var heightTraitNames = map[string]bool{"height": true, "image height": true, "pixel height": true}

func fromTraitPair(in DimensionInput) *domain.Dimensions {
	var width, height int
	for _, attr := range in.Attributes {
		name := strings.ToLower(strings.TrimSpace(attr.TraitType))
		value, err := strconv.Atoi(strings.TrimSpace(attr.Value))
		if err != nil || value <= 0 {
			continue
		}
		if widthTraitNames[name] && width == 0 {
			width = value
		}
		if heightTraitNames[name] && height == 0 {
			height = value
		}
	}
	if width > 0 && height > 0 {
		return &domain.Dimensions{Width: width, Height: height}
	}
	return nil
}

// e.g. "1920x1080", "1920 x 1080", "1920X1080"
var dimensionPattern = regexp.MustCompile(`\b(\d{2,5})\s*[xX×]\s*(\d{2,5})\b`)

func fromFreeTextPattern(in DimensionInput) *domain.Dimensions {
	for _, text := range in.FreeText {
		match := dimensionPattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		width, _ := strconv.Atoi(match[1])
		height, _ := strconv.Atoi(match[2])
		if width > 0 && height > 0 {
			return &domain.Dimensions{Width: width, Height: height}
		}
	}
	return nil
}
