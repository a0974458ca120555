package dto

// EmailJob is the wire format published to the mail queue; the delivery
// worker on the other side of the exchange renders and sends it.
type EmailJob struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	ArticleID int64  `json:"article_id"`
}
