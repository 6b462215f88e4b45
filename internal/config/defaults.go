package config

const (
	ModeGrid    = "grid"
	ModeToolkit = "toolkit"

	QualitySourceQA   = "qa"
	QualitySourceRDQI = "rdqi"
)

const (
	defaultMode              = ModeGrid
	defaultTargetLat         = -13.8
	defaultTargetLon         = -70.8
	defaultMargin            = 2.0
	defaultResolution        = 0.0025
	defaultScaleFactor       = 64
	defaultGroundResolutionM = 275.0
	defaultQualitySource     = QualitySourceQA
	defaultOutputDir         = "./output"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogDir            = "~/.local/share/misrgrid/logs"
	defaultHistoryPath       = "~/.local/share/misrgrid/history.db"
	defaultWorkers           = 1
	defaultToolkitField      = "Red Radiance/RDQI"
	defaultToolkitULCLat     = -12.8
	defaultToolkitULCLon     = -71.8
	defaultToolkitLRCLat     = -14.8
	defaultToolkitLRCLon     = -69.8
	defaultQuicklookWidthCM  = 16
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Processing: Processing{Mode: defaultMode},
		Region: Region{
			TargetLat: defaultTargetLat,
			TargetLon: defaultTargetLon,
			Margin:    defaultMargin,
		},
		Grid: Grid{
			Resolution:        defaultResolution,
			ScaleFactor:       defaultScaleFactor,
			GroundResolutionM: defaultGroundResolutionM,
		},
		Quality: Quality{
			Enabled: false,
			Source:  defaultQualitySource,
		},
		Output: Output{
			Dir:          defaultOutputDir,
			NetCDF:       true,
			GeoTIFF:      true,
			Quicklook:    true,
			Metadata:     true,
			AddTimestamp: true,
			QuicklookCM:  defaultQuicklookWidthCM,
		},
		Toolkit: Toolkit{
			ULCLat:             defaultToolkitULCLat,
			ULCLon:             defaultToolkitULCLon,
			LRCLat:             defaultToolkitLRCLat,
			LRCLon:             defaultToolkitLRCLon,
			FieldName:          defaultToolkitField,
			ApplyQualityFilter: true,
		},
		Batch: Batch{
			Workers:        defaultWorkers,
			ValidateInputs: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			Dir:    defaultLogDir,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath,
		},
	}
}
