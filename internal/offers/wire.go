package offers

// Request and response bodies of the offer-view endpoint.

type offerViewRequest struct {
	CityID              string           `json:"cityId"`
	ID                  string           `json:"id"`
	MerchantUID         []string         `json:"merchantUID"`
	Limit               int              `json:"limit"`
	Page                int              `json:"page"`
	Product             offerViewProduct `json:"product"`
	SortOption          string           `json:"sortOption"`
	HighRating          *bool            `json:"highRating"`
	SearchText          *string          `json:"searchText"`
	IsExcellentMerchant bool             `json:"isExcellentMerchant"`
	ZoneID              []string         `json:"zoneId"`
	InstallationID      string           `json:"installationId"`
}

type offerViewProduct struct {
	Brand            *string  `json:"brand"`
	CategoryCodes    []string `json:"categoryCodes"`
	BaseProductCodes []string `json:"baseProductCodes"`
	Groups           *string  `json:"groups"`
	ProductSeries    []string `json:"productSeries"`
}

type offerViewResponse struct {
	Offers      []rawOffer `json:"offers"`
	Total       int        `json:"total"`
	OffersCount int        `json:"offersCount"`
}

// totalSellers is the platform's claimed seller count, 0 when absent.
func (r offerViewResponse) totalSellers() int {
	if r.Total > 0 {
		return r.Total
	}
	return max(r.OffersCount, 0)
}

type rawOffer struct {
	Price                   float64  `json:"price"`
	PriceMinusBonus         *float64 `json:"priceMinusBonus"`
	MerchantID              string   `json:"merchantId"`
	MerchantName            string   `json:"merchantName"`
	MerchantRating          *float64 `json:"merchantRating"`
	MerchantReviewsQuantity *int     `json:"merchantReviewsQuantity"`
	PurchaseCount           int      `json:"purchaseCount"`
	Preorder                int      `json:"preorder"`
	DeliveryType            string   `json:"deliveryType"`
	ProductName             string   `json:"productName"`
	Name                    string   `json:"name"`
	CategoryName            string   `json:"categoryName"`
	Category                string   `json:"category"`
}

func newOfferViewRequest(cityID, zoneID, productID string, limit, page int) offerViewRequest {
	return offerViewRequest{
		CityID:      cityID,
		ID:          productID,
		MerchantUID: []string{},
		Limit:       limit,
		Page:        page,
		Product: offerViewProduct{
			CategoryCodes:    []string{},
			BaseProductCodes: []string{},
			ProductSeries:    []string{},
		},
		SortOption:     "PRICE",
		ZoneID:         []string{zoneID},
		InstallationID: "-1",
	}
}
