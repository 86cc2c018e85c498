package types

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Alias                    string `yaml:"alias"`
	DeviceModel              string `yaml:"deviceModel"`
	DeviceType               string `yaml:"deviceType"`
	Fingerprint              string `yaml:"fingerprint"`
	Port                     int    `yaml:"port"`
	Protocol                 string `yaml:"protocol"`
	CertPEM                  string `yaml:"certPEM,omitempty"`
	KeyPEM                   string `yaml:"keyPEM,omitempty"`
	DownloadFolder           string `yaml:"downloadFolder"`
	AutoAccept               bool   `yaml:"autoAccept"`
	ShowToken                string `yaml:"showToken,omitempty"`
	DecisionTimeoutSeconds   int    `yaml:"decisionTimeoutSeconds"`
	NotifySocketPath         string `yaml:"notifySocketPath,omitempty"`
	NegotiationRatePerMinute int    `yaml:"negotiationRatePerMinute"`
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log             string
	UseConfigPath   string
	UseDownloadDir  string
	UseAlias        string
	UseHttp         bool
	UsePort         int
	UseAutoAccept   bool
	UseShowToken    string
	UseNotifySocket string
	UseQRCode       bool
	UseProbe        bool
	UseText         string
	UseTargetPort   int
	UseTargetHttps  bool
}
