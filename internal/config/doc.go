// Package config provides configuration loading and validation for the SAME
// alert codec service. Configuration is YAML; every key has a default and each
// section validates itself.
package config
