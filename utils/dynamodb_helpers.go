package utils

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ExtractString safely extracts a string from a DynamoDB attribute map
func ExtractString(item map[string]types.AttributeValue, field string) string {
	if attr, ok := item[field]; ok {
		if v, ok := attr.(*types.AttributeValueMemberS); ok {
			return v.Value
		}
	}
	return ""
}

// FirstString returns the first non-empty string attribute among fields.
func FirstString(item map[string]types.AttributeValue, fields ...string) string {
	for _, f := range fields {
		if v := ExtractString(item, f); v != "" {
			return v
		}
	}
	return ""
}

// ExtractFirstPhoto returns the first entry of a string list attribute
// such as "photos".
func ExtractFirstPhoto(item map[string]types.AttributeValue, field string) string {
	if attr, ok := item[field]; ok {
		if photos, ok := attr.(*types.AttributeValueMemberL); ok && len(photos.Value) > 0 {
			if photo, ok := photos.Value[0].(*types.AttributeValueMemberS); ok {
				return photo.Value
			}
		}
	}
	return ""
}
