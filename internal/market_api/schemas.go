package market_api

const citySchema = `{
	"type": "object",
	"properties": {
		"city": {"type": "string", "pattern": "^[1-9][0-9]*$"}
	},
	"required": ["city"],
	"additionalProperties": false
}`

const searchSchema = `{
	"type": "object",
	"properties": {
		"city": {"type": "string", "pattern": "^[1-9][0-9]*$"},
		"limit": {"type": "string", "pattern": "^[1-9][0-9]*$"},
		"q": {"type": "string", "minLength": 2}
	},
	"required": ["city", "q"],
	"additionalProperties": false
}`

const loginSchema = `{
	"type": "object",
	"properties": {
		"access_token": {"type": "string"},
		"tz": {"type": "string"}
	},
	"required": ["access_token", "tz"],
	"additionalProperties": false
}`

// price is in cents
const createListingSchema = `{
	"type": "object",
	"properties": {
		"event": {"type": "integer", "minimum": 1},
		"price": {"type": "integer", "minimum": 0},
		"message": {"type": ["null", "string"], "minLength": 1}
	},
	"required": ["event", "price"],
	"additionalProperties": false
}`

const updateListingSchema = `{
	"type": "object",
	"properties": {
		"price": {"type": "integer", "minimum": 0},
		"message": {"type": ["null", "string"], "minLength": 1}
	},
	"additionalProperties": false
}`

const checkoutSchema = `{
	"type": "object",
	"properties": {
		"listing": {"type": "integer", "minimum": 1},
		"card_token": {"type": "string", "pattern": "^tok_.+"}
	},
	"required": ["listing"],
	"additionalProperties": false
}`

const ticketFormSchema = `{
	"type": "object",
	"properties": {
		"checkout": {"type": "string", "pattern": "^[1-9][0-9]*$"}
	},
	"required": ["checkout"],
	"additionalProperties": false
}`

const qrSchema = `{
	"type": "object",
	"properties": {
		"size": {"type": "string", "pattern": "^[1-9][0-9]{0,3}$"}
	},
	"additionalProperties": false
}`

const pdfSchema = `{
	"type": "object",
	"properties": {
		"token": {"type": "string", "minLength": 1}
	},
	"required": ["token"],
	"additionalProperties": false
}`
