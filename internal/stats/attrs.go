package stats

import "go.opentelemetry.io/otel/attribute"

func statusClassAttr(class int) attribute.KeyValue {
	switch class {
	case 2:
		return attribute.String("status_class", "2xx")
	case 4:
		return attribute.String("status_class", "4xx")
	case 5:
		return attribute.String("status_class", "5xx")
	default:
		return attribute.String("status_class", "other")
	}
}
