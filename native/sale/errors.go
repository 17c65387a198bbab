package sale

import "errors"

var (
	// ErrInvalidAmount indicates a zero, negative, or otherwise malformed amount.
	ErrInvalidAmount = errors.New("sale: invalid amount")
	// ErrInvalidAsset indicates an empty or malformed asset identifier.
	ErrInvalidAsset = errors.New("sale: invalid asset")
	// ErrInvalidReference indicates an empty settlement reference.
	ErrInvalidReference = errors.New("sale: invalid settlement reference")
	// ErrReferenceProcessed indicates the settlement reference was already credited.
	ErrReferenceProcessed = errors.New("sale: settlement reference already processed")
	// ErrBatchLengthMismatch indicates batch arrays of unequal length.
	ErrBatchLengthMismatch = errors.New("sale: batch arrays must have equal length")
	// ErrUnauthorized indicates the caller lacks the required role.
	ErrUnauthorized = errors.New("sale: caller lacks required role")
	// ErrIdentityNotVerified indicates the contributor has not passed identity verification.
	ErrIdentityNotVerified = errors.New("sale: identity not verified")
	// ErrContributionTooSmall indicates the USD value is below the configured minimum.
	ErrContributionTooSmall = errors.New("sale: contribution below minimum")
	// ErrContributionLimit indicates the contribution would exceed the per-contributor cap.
	ErrContributionLimit = errors.New("sale: contribution limit exceeded")
	// ErrInvalidPriceFeed indicates the adapter was constructed without a price feed.
	ErrInvalidPriceFeed = errors.New("sale: invalid price feed")
	// ErrInvalidPriceData indicates the latest oracle round failed validation.
	ErrInvalidPriceData = errors.New("sale: invalid price data")
	// ErrAssetNotSupported indicates the asset is absent or inactive in the registry.
	ErrAssetNotSupported = errors.New("sale: asset not supported")
	// ErrAssetActive indicates an attempt to register an already-active asset.
	ErrAssetActive = errors.New("sale: asset already registered")
)
