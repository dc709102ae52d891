package client

// Payload is the OpenWeatherMap /data/2.5/weather response.
// Validation tags mark what the mapper needs; anything else may be absent.
type Payload struct {
	Coord      *Coordinates   `json:"coord"`
	Weather    []Condition    `json:"weather" validate:"required,min=1,dive"`
	Main       *MainInfo      `json:"main" validate:"required"`
	Visibility int            `json:"visibility" validate:"gte=0"` // meters
	Wind       *Wind          `json:"wind" validate:"required"`
	Clouds     *Clouds        `json:"clouds" validate:"required"`
	Rain       *Precipitation `json:"rain"`
	Snow       *Precipitation `json:"snow"`
	Dt         int64          `json:"dt" validate:"required,gt=0"`
	Sys        *SysInfo       `json:"sys" validate:"required"`
	Name       string         `json:"name"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main" validate:"required"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type MainInfo struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure" validate:"gte=0"`
	Humidity  int     `json:"humidity" validate:"gte=0,lte=100"`
}

type Wind struct {
	Speed float64  `json:"speed" validate:"gte=0"`
	Deg   int      `json:"deg" validate:"gte=0,lte=360"`
	Gust  *float64 `json:"gust"`
}

type Clouds struct {
	All int `json:"all" validate:"gte=0,lte=100"`
}

type Precipitation struct {
	OneHour    float64 `json:"1h"`
	ThreeHours float64 `json:"3h"`
}

type SysInfo struct {
	Country string `json:"country"`
	Sunrise int64  `json:"sunrise" validate:"required"`
	Sunset  int64  `json:"sunset" validate:"required"`
}
