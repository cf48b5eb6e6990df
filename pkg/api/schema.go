package api

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// webhookSchemaJSON is the shape contract for the webhook body. It only
// checks types and presence; the business constraints (trimmed lengths,
// positivity, currency width) run after normalization.
const webhookSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://webhookd.confluencr.dev/schemas/webhook.json",
  "type": "object",
  "required": ["transaction_id", "source_account", "destination_account", "amount", "currency"],
  "properties": {
    "transaction_id": {"type": "string"},
    "source_account": {"type": "string"},
    "destination_account": {"type": "string"},
    "amount": {"type": ["number", "string"]},
    "currency": {"type": "string"},
    "fail_for_testing": {"type": "boolean"}
  }
}`

var webhookSchema = jsonschema.MustCompileString("webhook.json", webhookSchemaJSON)
