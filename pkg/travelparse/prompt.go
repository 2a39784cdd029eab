package travelparse

// extractionPrompt instructs the model to pull structured trip legs out of
// free-form travel text. The %s placeholder receives the email text.
const extractionPrompt = `You extract travel legs from email text (booking
confirmations, itineraries, check-in reminders, receipts).

Return a JSON array with one object per country/date pair the text refers
to. A single email can reference several legs (e.g. an outbound flight and a
return, or a multi-city itinerary); return one entry per leg. Return an
empty array when the text is not about travel.

Rules:
- country_code: ISO 3166-1 alpha-2 code, uppercase.
- country_name: English short name of the country.
- date: the date the traveler is in that country (check-in, arrival or
  departure date as appropriate), formatted YYYY-MM-DD, or "" when the text
  gives no usable date.
- Only include countries the traveler visits, never the airline's or
  booking site's home country.

EMAIL TEXT:
%s`
