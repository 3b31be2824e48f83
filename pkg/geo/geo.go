package geo

import "math"

const (
	// EarthRadiusMeters - средний радиус Земли
	EarthRadiusMeters = 6371000.0

	// MetersPerDegreeLat - метров в одном градусе широты
	MetersPerDegreeLat = 111000.0

	// MetersPerDegreeLng - метров в одном градусе долготы.
	// Константа подобрана для средних широт; фильтр близости оповещений
	// обязан использовать именно её, а не cos(lat)-параметризацию.
	MetersPerDegreeLng = 85000.0
)

// Haversine возвращает расстояние в метрах между двумя точками
// на сфере радиуса EarthRadiusMeters
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// FlatDistanceMeters - дешёвая плоская аппроксимация расстояния:
// градусы широты и долготы масштабируются в метры фиксированными
// коэффициентами, затем евклидово расстояние
func FlatDistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat1 - lat2) * MetersPerDegreeLat
	dLng := (lng1 - lng2) * MetersPerDegreeLng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// WithinFlatRadius сообщает, попадает ли точка в круг радиуса radiusMeters
// вокруг центра по плоской аппроксимации. Граница включается: точка ровно
// на расстоянии radiusMeters считается внутри.
func WithinFlatRadius(centerLat, centerLng, pointLat, pointLng, radiusMeters float64) bool {
	return FlatDistanceMeters(centerLat, centerLng, pointLat, pointLng) <= radiusMeters
}
