package tiers

import "errors"

var (
	ErrInvalidCatalog   = errors.New("invalid tier catalog")
	ErrDuplicatePriceID = errors.New("duplicate price id in tier catalog")
	ErrFailedToLoad     = errors.New("failed to load tier catalog")
)
