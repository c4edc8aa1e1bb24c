package types

// Caller part of a two-party settlement operation.
const (
	CallerPartSender   uint8 = 0 // deliverer of the instrument
	CallerPartReceiver uint8 = 1 // payer
)

// InstrumentData identifies a specific tradable public bond series. The
// registry derives the instrument id from these fields; two descriptors
// with identical fields always map to the same id.
type InstrumentData struct {
	Acronym      string `json:"acronym" binding:"required"`
	Code         string `json:"code" binding:"required"`
	MaturityDate uint64 `json:"maturity_date" binding:"required"`
}
