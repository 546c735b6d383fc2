package models

import (
	"strconv"

	"ticket-bazaar/internal/mapper"
)

// Schemas lists every entity schema for mapper.Verify at startup.
func Schemas() []mapper.Schema {
	return []mapper.Schema{
		AccountMapper.Schema(),
		VenueMapper.Schema(),
		EventMapper.Schema(),
		ListingMapper.Schema(),
		CardMapper.Schema(),
		CheckoutMapper.Schema(),
		PdfMapper.Schema(),
	}
}

var cities = map[int64]string{
	1: "new-york",
	2: "austin",
}

// CitySlug is the URL name of a city, falling back to its id.
func CitySlug(id int64) string {
	if slug, ok := cities[id]; ok {
		return slug
	}
	return strconv.FormatInt(id, 10)
}
