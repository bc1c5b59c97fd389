package metrics

import "strings"

const namespace = "docqa"

// MetricName prefixes name with the service namespace.
func MetricName(name string) string {
	prefix := namespace + "_"
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

// MetricNameWithSubsystem builds namespace_subsystem_name.
func MetricNameWithSubsystem(subsystem, name string) string {
	subsystem = strings.Trim(subsystem, "_")
	if subsystem == "" {
		return MetricName(name)
	}
	if name == "" {
		return MetricName(subsystem)
	}
	if strings.HasPrefix(name, namespace+"_") {
		return name
	}
	return MetricName(subsystem + "_" + name)
}
