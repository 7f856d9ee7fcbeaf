// Package codec drives the external tool that decodes, converts and reduces
// meteorological files.
//
// The production implementation, CDO, shells out to the Climate Data
// Operators. Everything else in the module talks to the Codec interface so
// tests can substitute the in-memory fake from package codectest.
//
//	c := &codec.CDO{}
//	n, err := c.CountSteps(ctx, "ERA5_2m_temperature_mon_full_sfc_1990.grb")
package codec
