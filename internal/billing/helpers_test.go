package billing

import (
	"github.com/jmoiron/sqlx/types"
	"github.com/tidwall/gjson"
)

func parseJSON(raw string) gjson.Result {
	return gjson.Parse(raw)
}

func jsonField(data types.JSONText, path string) string {
	return gjson.GetBytes(data, path).String()
}
