package validate

// Point is a latitude/longitude pair.
type Point struct {
	Lat float64
	Lon float64
}

// DefaultCenter is used for cities without a known center.
var DefaultCenter = Point{Lat: 27.9506, Lon: -82.4572}

var cityCenters = map[string]Point{
	"Tampa":          {Lat: 27.9506, Lon: -82.4572},
	"Orlando":        {Lat: 28.5383, Lon: -81.3792},
	"Miami":          {Lat: 25.7617, Lon: -80.1918},
	"St. Petersburg": {Lat: 27.7676, Lon: -82.6403},
	"St Petersburg":  {Lat: 27.7676, Lon: -82.6403},
}

// CityCenter returns the fallback coordinates for city.
func CityCenter(city string) Point {
	if p, ok := cityCenters[city]; ok {
		return p
	}
	return DefaultCenter
}
